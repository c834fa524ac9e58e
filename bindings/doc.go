/*
Package bindings assembles named emulated platform bindings into one test
environment.

An Env hands out kv stores, query engines, object buckets, service clients,
and analytics datasets by binding name, creating each lazily on first access.
All children share the environment's clock, logger, and metrics registry, and
one Reset call restores every created binding to its initial state:

	env := bindings.New(bindings.Config{})

	cache := env.KV("CACHE")
	pricing := env.Service("PRICING")

	// ... exercise code under test ...

	env.Reset()

# Fixtures

Load and LoadFile declare bindings up front from a YAML fixture shaped like a
deployment manifest:

	kv_namespaces:
	  - binding: CACHE
	    seed:
	      "dye:snow-white": "#fafafa"

	d1_databases:
	  - binding: DB

	r2_buckets:
	  - binding: ASSETS
	    seed:
	      "palettes/winter.json": '{"dyes":["snow white"]}'

	services:
	  - binding: PRICING
	    rules:
	      - match: "/dyes/"
	        status: 200
	        body: '{"price":1200}'
	      - regexp: "/palettes/\\d+"
	        status: 404
	    default:
	      status: 503

	analytics_datasets:
	  - binding: USAGE

A fixture is applied atomically: validation failures (missing binding names,
duplicate bindings, unparseable rule patterns) reject the whole fixture and
leave the environment untouched.
*/
package bindings
