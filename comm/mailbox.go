package comm

// MailBox carries messages between ranks. Every ordered pair of ranks owns a
// FIFO channel, so messages between two ranks arrive in the order they were
// posted, which is what the collectives rely on for matching.
type MailBox struct {
	NP           int
	MessageChans [][]chan any // [target][source]
	abort        chan struct{}
}

// Depth of each pair channel. A rank can run at most one collective ahead of
// any peer, so two slots would be enough.
const mailDepth = 4

func NewMailBox(NP int) *MailBox {
	mb := &MailBox{
		NP:           NP,
		MessageChans: make([][]chan any, NP),
		abort:        make(chan struct{}),
	}
	for tgt := 0; tgt < NP; tgt++ {
		mb.MessageChans[tgt] = make([]chan any, NP)
		for src := 0; src < NP; src++ {
			mb.MessageChans[tgt][src] = make(chan any, mailDepth)
		}
	}
	return mb
}

func (mb *MailBox) PostMessage(myThread, targetThread int, msg any) error {
	select {
	case mb.MessageChans[targetThread][myThread] <- msg:
		return nil
	case <-mb.abort:
		return ErrAborted
	}
}

func (mb *MailBox) ReceiveMessage(myThread, sourceThread int) (any, error) {
	select {
	case msg := <-mb.MessageChans[myThread][sourceThread]:
		return msg, nil
	case <-mb.abort:
		return nil, ErrAborted
	}
}
