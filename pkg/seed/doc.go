// Package seed loads the loader field catalog from YAML and applies it
// idempotently: games, project types, loaders, enums with their values, and
// field definitions with their loader associations.
//
//	file, err := seed.Load("catalog.yaml")
//	seeder := seed.NewSeeder(schema, registry, log)
//	stats, err := seeder.Apply(ctx, file)
//
// Default returns the built-in minecraft-java catalog.
package seed
