// Package store maps nested values onto a hash-oriented key-value backend.
//
// The backend only stores flat field maps (hashes) and sets. Store decomposes
// objects and arrays into one record per level and links them with reference
// tokens, then resolves those references again on read.
//
// # Layout
//
// Writing
//
//	s.Set(ctx, "guild", map[string]any{
//	    "name": "xd",
//	    "members": map[string]any{
//	        "id": map[string]any{"nick": "meme", "joinedAt": 20},
//	    },
//	    "list": []any{"item", "other item"},
//	})
//
// produces the records
//
//	guild             name=raw:string:xd  members=ref:obj:guild.members  list=ref:arr:guild.list
//	guild.members     id=ref:obj:guild.members.id
//	guild.members.id  nick=raw:string:meme  joinedAt=raw:number:20
//	guild.list        0=raw:string:item  1=raw:string:other item
//
// all committed in a single backend transaction.
//
// # Operations
//
//   - [Store.Upsert] merges a value into what is stored; dotted keys write a
//     single branch of the root record
//   - [Store.Set] deletes then upserts
//   - [Store.Get] and [Store.GetWithOptions] resolve a record, optionally to a
//     bounded depth
//   - [Store.Delete] removes a record and everything reachable from it
//   - [Store.Incr] atomically increments one nested numeric field
//   - [Store.Keys], [Store.Size] and [Store.Exists] inspect a single record
//
// # Backends
//
// Any [Backend] works. The module ships memory, bolt, redis and dynamo
// implementations under backend/.
//
// # Errors
//
// The package defines domain-specific errors:
//
//   - [ErrCircularStructure] - a written value contains itself
//   - [ErrUnrecognizedEntry] - a stored field is not a token or a number
//   - [ErrNoFieldInKey] - Incr was given a root key
//   - [ErrKeyParse] - a key or nested field name is malformed
//   - [ErrNotComposite] - a primitive was written at a root key
//   - [ErrExpiryUnsupported] - the backend cannot expire records
//
// Malformed tokens surface as token.ErrInvalidPrimitiveType and
// token.ErrInvalidReference and are never recovered from.
package store
