// Package dumper orchestrates a full community archive run.
//
// A run resolves the community identifier, then walks the content
// sections in a fixed order: profile header, wall (with comments and
// likes), photo albums, documents, video references, board discussions,
// wiki pages, members and statistics. Each section is swept through the paginated
// VK API and every record is written to the archive exactly once.
//
// Resumability is built from two layers:
//
//   - The archive manifest, rebuilt by scanning the output tree at
//     startup. A record whose file already exists is never fetched
//     again in depth and never rewritten.
//   - The pagination checkpoint (cursors.json), saved after each fully
//     committed page. It lets an interrupted listing sweep continue
//     mid-collection instead of re-listing from offset zero. Deleting
//     it is always safe; it only costs repeated listing calls.
//
// Failure handling follows the scope of the error. A failed resolution
// aborts the run. A vendor refusal for one entity (closed comments,
// private album) skips that entity and is reported in the summary. A
// refusal for a whole section (hidden members, no stats access) skips
// the section. Transient failures are retried by the client and only
// surface here once the retry budget is exhausted.
package dumper
