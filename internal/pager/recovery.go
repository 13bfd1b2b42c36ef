package pager

// recoverFromWAL replays committed page images from the WAL since the
// last checkpoint. The WAL uses physical (full-page-image) logging, so
// recovery is idempotent re-application: replaying an already-durable
// page image is a no-op beyond an extra write.
func recoverFromWAL(p *Pager) error {
	records, err := readAllRecords(p.wal.path)
	if err != nil {
		return err
	}

	committed := make(map[TxID]bool)
	images := make(map[TxID][]*Record)
	for _, rec := range records {
		switch rec.Type {
		case RecordPageImage:
			images[rec.TxID] = append(images[rec.TxID], rec)
		case RecordCommit:
			committed[rec.TxID] = true
		case RecordAbort:
			delete(images, rec.TxID)
		case RecordCheckpoint:
			// Pages before a checkpoint are already durable on the main
			// file; nothing further to replay for them.
		}
	}

	for txID, imgs := range images {
		if !committed[txID] {
			continue
		}
		for _, rec := range imgs {
			if err := p.writePageRaw(rec.PageID, rec.Data); err != nil {
				return err
			}
		}
	}
	return nil
}
