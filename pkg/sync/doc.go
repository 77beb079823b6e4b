/*
The sync package implements drivesync's incremental mirror algorithm. It
copies a remote tree into a local directory, transferring only the entries
whose remote fingerprint differs from the one recorded locally.

Every downloaded file (an artifact) is accompanied by a sidecar file named
`<artifact>.meta`. The sidecar records the remote id, size and modification
time that the artifact was downloaded from. A valid sidecar is the only
signal that a download completed, so artifacts are first streamed into a
`.partial` file, renamed into place, and only then is the sidecar written.

A run proceeds root by root:
1) The Walker enumerates the remote tree with an explicit work stack and
   computes a sanitized relative path for every entry.
2) Folders are created locally in walk order.
3) The Detector partitions files into current ones, which are recorded as
   skipped, and ones that need to be fetched.
4) The fetch set is handed to Schedule, which runs the Fetcher on a fixed
   number of workers and funnels every Result back to a single goroutine
   that updates the progress.Reporter.

Content is never hashed. A remote entry whose size and modification time are
unchanged is trusted to have unchanged content.
*/
package sync
