// Package harness runs YAML scenarios against a compiled application.
//
// # Scenario Format
//
//	name: about_wso2
//	description: "What this scenario validates"
//	app: ../apps/stocks          # CUE directory, relative to the scenario file
//	engine: regexp2              # optional matcher engine
//	on_error: fail               # optional, fail (default) or drop
//	steps:
//	  - send:
//	      stream: inputStream
//	      event: {symbol: "21 products are produced by WSO2", group: 1}
//	    expect:
//	      aboutWSO2: {aboutWSO2: true}
//	      dynamic: null              # no row for this query
//	  - send: {stream: inputStream, event: {symbol: null}}
//	    expect_error: NULL_ARGUMENT
//	  - persist: true
//	  - restore: last              # or a revision id, e.g. rev-1
//	assertions:
//	  - type: row_count
//	    query: aboutWSO2
//	    count: 1
//
// A scenario that checks setup instead of events sets expect_setup_error
// and may have no steps.
//
// # Assertion Types
//
//   - row_contains: some row of query has the given values
//   - row_count: query produced exactly count rows
//   - final_state: the snapshot of instance contains the given values
//   - revision_count: the store holds exactly count revisions
//
// # Deterministic Testing
//
// Every scenario runs in a fresh in-memory SQLite store with a fresh
// logical clock and revision ids rev-1, rev-2, ... so the trace is
// byte-identical across runs and can be compared with a golden file.
package harness
