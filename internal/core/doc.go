// Package core provides the import session engine: parsing tabular files
// into candidates, matching them against stored entities, classifying
// conflicts, recording resolutions and committing the result atomically.
//
// The package has no transport or database dependencies of its own. Web
// handlers, the importctl CLI and tests drive it through [Service], and
// storage is plugged in through [EntityStore], [SessionStore] and
// [Notifier].
//
// # Entity Kinds
//
// Kinds are registered at init time using [Register]. Each [EntityKind]
// names its fields, which of them identify an entity and which are
// compared by edit distance:
//
//	core.Register(core.EntityKind{
//	    Key:   "plant_taxon",
//	    Scope: core.ScopeShared,
//	    Fields: []core.FieldSpec{
//	        {Name: "genus", Required: true, Normalizer: core.Capitalize},
//	        {Name: "species", Required: true},
//	        {Name: "common_name", Required: true},
//	    },
//	    IdentityFields:    []string{"genus", "species"},
//	    DescriptiveFields: []string{"common_name"},
//	})
//
// # Session Lifecycle
//
// A session moves forward through parsing, awaiting_resolution, resolving,
// committing and completed. Any step may end in failed. The one way back is
// a retry: a session whose commit failed in storage may commit again.
//
//  1. [Service.StartImport] parses the file with a [ColumnMapping], matches
//     every valid row and stores the conflicts found
//  2. [Service.GetSuggestedResolutions] proposes an action per conflict
//  3. [Service.ResolveConflicts] records decisions, each item accepted or
//     rejected on its own
//  4. [Service.Commit] builds one [WritePlan] and applies it all or nothing,
//     then notifies subscribers
//
// # Error Handling
//
// Every failure is an [*Error] carrying an [ErrorKind]. [MapError] turns it
// into a [UserMessage] with a support code:
//
//   - IMP001-IMP006: one per error kind
//   - DB001-DB005: database errors
//   - VAL001-VAL004: value and column errors
//   - FILE001-FILE003: file errors
//   - SYS001-SYS003: capacity, cancellation and timeouts
package core
