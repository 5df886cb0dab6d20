/*
Package storage defines the narrow contract between the batch layer and a
concrete data store.

The batch orchestrator only ever talks to a Client. Adapters translate the
Client surface onto their native primitives and publish a Capabilities
snapshot so the planner can size batches and pick an execution mode without
knowing the provider:

	caps := client.Capabilities()
	size := planner.OptimalBatchSize(planner.OpCreateMany, caps)

Two adapters ship with the library:

  - memstore: an in-memory Client with unique-constraint enforcement,
    used as the default test double and an embedded backend.
  - ddb: a DynamoDB-backed Client built on aws-sdk-go-v2.

Records are flat field maps. Relation-shaped values ({id} objects, connect
blocks) are stripped by the relations package before a Record reaches a
Client.
*/
package storage
