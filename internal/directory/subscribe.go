package directory

// Subscribe returns a channel that receives a State after every change of the
// busy flag, last error or records, and a func to stop the subscription.
// Slow readers only miss intermediate states: the channel always holds the latest one.
func (d *Directory) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	d.subMu.Lock()
	id := d.nextSub
	d.nextSub++
	ch <- d.State()
	d.subs[id] = ch
	d.subMu.Unlock()

	return ch, func() {
		d.subMu.Lock()
		defer d.subMu.Unlock()
		if _, ok := d.subs[id]; ok {
			delete(d.subs, id)
			close(ch)
		}
	}
}

func (d *Directory) publish() {
	d.subMu.Lock()
	defer d.subMu.Unlock()
	if len(d.subs) == 0 {
		return
	}

	s := d.State()
	for _, ch := range d.subs {
		// drop the stale state, if any, then deliver the new one
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}
