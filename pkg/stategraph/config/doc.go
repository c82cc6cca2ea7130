// Package config loads stategraph settings from YAML or JSON files, .env
// files and environment variables.
//
// Precedence, lowest first: Default, the config file, the environment.
//
// Example:
//
//	cfg, err := config.Load("stategraph.yaml", os.LookupEnv)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Engine.MaxIterations)
//
// A YAML file looks like:
//
//	engine:
//	  max_iterations: 25
//	log:
//	  level: debug
//	  format: json
//	llm:
//	  provider: openai
//	  model: gpt-4o-mini
//	  timeout: 30s
//	journal:
//	  driver: sqlite
//	  dsn: ./stategraph.db
//	refine:
//	  max_attempts: 3
package config
