// Package config parses environment variables into typed structs.
//
// Every infrastructure package in billingkit owns an env-tagged Config
// struct. The composition root loads each one through Load, which reads an
// optional .env file once, parses the process environment with
// github.com/caarlos0/env/v11 and caches the result per struct type:
//
//	var pgCfg pg.Config
//	if err := config.Load(&pgCfg); err != nil {
//		return err
//	}
//
// Errors wrap ErrParsingConfig, so callers can tell a misconfigured deploy
// from other startup failures. Tests call Reset between cases that change
// the environment.
package config
