package conntable

import (
	"fmt"
	"io"
)

// Dump writes one TSV header line followed by one row per connection node
// across the whole table, in bucket order and, within a pool, list order
// (most-recently-inserted first, since Insert prepends) — matching
// conntable_v2.c's hash_for_each walk order so output is deterministic for
// a fixed table construction. Implements spec.md §6's dump format.
func (t *Table) Dump(w io.Writer) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if _, err := fmt.Fprintln(w, "HOST\tSTATE\tRETRIES\tLOOKUPS\tWAITS\tAVG_WAIT(us)\tAVG_LAT_GET(us)\tAVG_LAT_PUT(us)\tSEND(kb)\tRCV(kb)"); err != nil {
		return err
	}

	for _, bucket := range t.buckets {
		for _, pool := range bucket {
			// nr_waits is tracked per pool, not per node (spec.md's Data
			// Model table has no per-node wait counter) — every row for a
			// given pool reports that pool's cumulative wait count.
			waits := pool.nrWaits.Load()

			for e := pool.connList.Front(); e != nil; e = e.Next() {
				node := e.Value.(*Node)
				lookups := node.stats.nrLookups.Load()
				avgWait := avgMicros(node.stats.totWaitNanos.Load(), lookups)
				avgGet := avgMicros(node.stats.totGetNanos.Load(), lookups)
				avgPut := avgMicros(node.stats.totPutNanos.Load(), lookups)
				txKB := node.stats.txBytes.Load() / 1024
				rxKB := node.stats.rxBytes.Load() / 1024

				_, err := fmt.Fprintf(w, "%s:%d\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\n",
					node.IP, node.Port, node.State(), node.NrRetryAttempts(),
					lookups, waits, avgWait, avgGet, avgPut, txKB, rxKB)
				if err != nil {
					return err
				}
			}
		}
	}
	return nil
}
