/*
Package registry manages model metadata for batchstore.

The registry supplies the orchestrator with everything it needs to plan a
batch for a model: unique constraints for deduplication and upsert
classification, relation descriptors for normalization, the tenant key to
exclude from change detection, and index maps for key-template backends.

Model Registry:
Associates model names with their metadata:

	registry.RegisterModel(&registry.ModelInfo{
	    Name:              "User",
	    TableName:         "users",
	    UniqueConstraints: [][]string{{"email"}},
	    Relations: []registry.RelationDescriptor{
	        {FieldName: "groups", Kind: registry.ManyRelation, RelatedTypeName: "Group"},
	    },
	    IndexMap: map[string]string{
	        "PK": "USER#{id}",
	        "SK": "USER#{id}",
	    },
	})

The Introspector interface decouples consumers from the registry itself;
Default resolves through the process-wide registry, and callers with their
own schema source can plug in any other implementation.

The registry is thread-safe and should be populated during initialization,
typically in init() functions or through generated code.
*/
package registry
