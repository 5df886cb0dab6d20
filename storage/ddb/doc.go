/*
 * Copyright © 2025 Syntrodata Systems Inc., All rights reserved.
 */

/*
Package ddb implements storage.Client on a single DynamoDB table.

Keys come from each model's index map, whose templates use macros expanded
from record fields:

	indexMap := map[string]string{
	    "PK": "USER#{id}",   // Becomes "USER#123"
	    "SK": "USER#{id}",
	}

Batch inserts and deletes go through BatchWriteItem in chunks of 25 with
bounded re-submission of unprocessed items. Single-record creates carry an
attribute_not_exists condition so collisions surface as unique violations
instead of silent overwrites; the batch layer relies on this for its
duplicate handling, since BatchWriteItem itself cannot skip duplicates.

For usage examples, see the integration tests.
*/
package ddb
