// Package dsl — see parser.go for the entry points (Load, Parse) and ir.go
// for the intermediate representation these produce.
//
// Document shape (§6.1):
//
//	version: "1"
//	settings: { runtime: { max_step_executions: 25 }, ... }
//	responses: { success: { default: "All set!", es: "¡Listo!" } }
//	slots: { origin: { type: string, prompt: "Where from?", required: true } }
//	actions: { search_flights: { inputs: [origin, destination], outputs: [results] } }
//	flows:
//	  book:
//	    trigger: { intents: ["book a flight"] }
//	    process:
//	      - { step: ask_origin, type: collect, slot: origin }
//	      - { step: search, type: action, call: search_flights }
package dsl
