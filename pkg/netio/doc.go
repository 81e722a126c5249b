// Package netio reads and writes fitting networks as JSON or YAML documents.
//
// # Overview
//
// A network document lists every component of a fitting tree together with
// the port that feeds it. The same structure is accepted in JSON and YAML, so
// networks can be written by hand or exported from a modelling tool.
//
// # Document Format
//
//	components:
//	  - id: supply
//	    type: terminal
//	    trunk: {fixed_pressure: 350000}
//	    ports:
//	      - {diameter: 0.1, position: [0, 0, 0]}
//	  - id: main
//	    type: segment
//	    upstream: {component: supply, port: 0}
//	    ports:
//	      - {diameter: 0.1, position: [0, 0, 0]}
//	      - {diameter: 0.1, position: [12, 0, 0]}
//	  - id: head-1
//	    type: terminal
//	    leaf: {flow: 0.0015, k_factor: 8.1e-6}
//	    upstream: {component: main, port: 1}
//	    ports:
//	      - {diameter: 0.025, position: [12, 0, 0]}
//
// # Component Fields
//
// Required:
//   - id: unique identifier
//   - type: segment, elbow, wye, cross, reducer, coupler, manifold,
//     terminal or assembly
//   - ports: one entry per port, trunk side first (assemblies have none)
//
// Optional:
//   - origin: [x, y, z] transform origin (defaults to the first port position)
//   - upstream: the component and port index feeding this component's trunk side
//   - angle: turn of an elbow in degrees
//   - trunk_length: trunk run of a manifold in metres
//   - leaf / trunk: classification of a terminal
//   - parts: nested components of an assembly
//
// Units are SI throughout: metres, m³/s and pascals. Segment length is the
// distance between its ports.
//
// Ports of a solved network also carry flow and pressure. These fields are
// written by [Write] and ignored by [Read].
//
// # Import and Export
//
// Use [Import] and [Export] for files; the format follows the file
// extension (.json, .yaml or .yml). [Read] and [Write] work on any reader or
// writer with an explicit [Format].
package netio
