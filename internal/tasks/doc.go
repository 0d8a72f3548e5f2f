// package tasks implements playlist transfer operations between music services.
//
// The core abstraction is [PlaylistEngine], which orchestrates playlist transfers,
// comparisons, and bulk exports. Operations emit progress updates via channels
// for non-blocking status reporting to CLI/UI layers. Track identity across
// services is established by ISRC, with a normalized title/artist key as a
// comparison fallback.
package tasks
