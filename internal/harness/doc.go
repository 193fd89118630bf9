// Package harness runs directory scenarios: YAML files that lay out a
// simulation directory, apply a sequence of steps to it and assert on the
// result.
//
// # Scenario Format
//
//	name: scenario_name
//	description: "What this scenario validates"
//	solver: cbox            # optional, saves default parameters in the run
//	layout:
//	  dirs: [.snakemake, session_00]
//	  files:
//	    SIZE: ""
//	    session_00/cbox0.f00001: ""
//	  symlinks:
//	    session_00/cbox.re2: ../cbox.re2
//	steps:
//	  - action: status
//	  - action: restart
//	    start_from: "-1"
//	  - action: remove
//	    path: .snakemake/locks/0.input.lock
//	assertions:
//	  - type: status
//	    code: 206
//	  - type: exists
//	    path: session_01/init_state.restart
//
// # Step Actions
//
//   - status: classifies the run and records the status in the registry
//   - restart: prepares a restart (LoadForRestart) and, with new_dir,
//     creates the new run directory
//   - touch, mkdir, remove: change the directory between steps
//
// # Assertion Types
//
//   - status: the final status of the run
//   - exists, missing: a path relative to the run directory
//   - link: a symlink and its target
//   - param: a parameter of the last successful restart
//   - error: the last failing step's error contains a substring
//   - history: status codes recorded in the registry, oldest first
//
// # Deterministic Testing
//
// Scenarios run against an in-memory registry with sequential identifiers
// and a stepping clock, and new run directories are named after a fixed
// time. Paths in the trace are relative to the run directory so traces
// compare byte for byte against golden files.
package harness
