package daqdio

type Access int

const (
	AccessRead Access = iota
	AccessWrite
)

func (a Access) String() string {
	if a == AccessWrite {
		return "WRITE"
	}
	return "READ"
}

// Channel is a single boolean line of a port, or the counter.
type Channel struct {
	Name   string
	Port   PortName
	Bit    int
	Access Access
}

func (ch Channel) IsCounter() bool {
	return ch.Port == PortCounter
}

// ChannelTable indexes channels by name and keeps their registration order.
type ChannelTable struct {
	channels []Channel
	byName   map[string]int
}

func NewChannelTable() *ChannelTable {
	return &ChannelTable{byName: make(map[string]int)}
}

func (ct *ChannelTable) Register(ch Channel) error {
	if _, found := ct.byName[ch.Name]; found {
		return &DuplicateChannelError{Name: ch.Name}
	}

	ct.byName[ch.Name] = len(ct.channels)
	ct.channels = append(ct.channels, ch)
	return nil
}

func (ct *ChannelTable) Lookup(name string) (Channel, error) {
	idx, found := ct.byName[name]
	if !found {
		return Channel{}, &UnknownChannelError{Name: name}
	}
	return ct.channels[idx], nil
}

// All returns a copy of the channels: ports A, B, C by ascending bit, then
// the counter.
func (ct *ChannelTable) All() []Channel {
	return append([]Channel{}, ct.channels...)
}

func (ct *ChannelTable) Len() int {
	return len(ct.channels)
}
