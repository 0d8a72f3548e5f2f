// Package repositories implements sqlite persistence for the local playlist
// cache and the sync history.
//
// Playlists and tracks are cached per service keyed by (service, service_id),
// so repeated syncs can resolve names and recording codes without refetching.
// [SyncRunRepository] records every transfer with its match counts.
package repositories
