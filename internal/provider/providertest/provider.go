// Package providertest provides an in-memory provider.Provider for tests.
package providertest

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/provider"
)

// Message is one message held by the fake server.
type Message struct {
	MessageID string
	Flags     []string
	Labels    []string
	Body      []byte
}

// StoreCall records one Store invocation.
type StoreCall struct {
	UID   uint32
	Field provider.Field
	Old   []string
	New   []string
}

// OpenCall records one OpenMailbox invocation.
type OpenCall struct {
	Name     string
	Writable bool
}

// FetchCall records one Fetch invocation.
type FetchCall struct {
	UIDs   []uint32
	Fields provider.Field
}

// Provider is an in-memory mailbox. Store calls mutate the held messages
// so consecutive passes observe earlier writes.
type Provider struct {
	mu sync.Mutex

	UIDValidity uint32
	Messages    map[uint32]*Message

	// ToTagFunc overrides ToTag, which otherwise drops inbox markers and
	// returns every other name unchanged.
	ToTagFunc func(name string) string
	// TagFlags and TagLabels back TagToFlag and TagToLabel.
	TagFlags  map[string]string
	TagLabels map[string]string

	ConnectErr error
	OpenErr    error
	FetchErr   error
	StoreErr   error

	Connects    int
	Disconnects int
	Opens       []OpenCall
	Fetches     []FetchCall
	Stores      []StoreCall

	connected bool
}

// New returns an empty mailbox with the given UID validity.
func New(uidValidity uint32) *Provider {
	return &Provider{
		UIDValidity: uidValidity,
		Messages:    map[uint32]*Message{},
		TagFlags:    map[string]string{},
		TagLabels:   map[string]string{},
	}
}

// Add places a message under uid.
func (p *Provider) Add(uid uint32, msg Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Messages[uid] = &msg
}

// AddRange adds plain inbox messages for every UID in [from, to].
func (p *Provider) AddRange(from, to uint32) {
	for uid := from; uid <= to; uid++ {
		p.Add(uid, Message{Labels: []string{provider.LabelInbox}})
	}
}

// Remove deletes the message under uid.
func (p *Provider) Remove(uid uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.Messages, uid)
}

// Get returns a copy of the message under uid.
func (p *Provider) Get(uid uint32) (Message, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	msg, ok := p.Messages[uid]
	if !ok {
		return Message{}, false
	}
	return *msg, true
}

// Connected reports whether a connection is currently held.
func (p *Provider) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// StoreCalls returns a copy of the recorded Store calls.
func (p *Provider) StoreCalls() []StoreCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.Stores)
}

func (p *Provider) Connect(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ConnectErr != nil {
		return p.ConnectErr
	}
	p.Connects++
	p.connected = true
	return nil
}

func (p *Provider) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connected {
		p.Disconnects++
	}
	p.connected = false
	return nil
}

func (p *Provider) OpenMailbox(_ context.Context, name string, writable bool) (provider.Status, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return provider.Status{}, provider.ErrNotConnected
	}
	if p.OpenErr != nil {
		return provider.Status{}, p.OpenErr
	}
	p.Opens = append(p.Opens, OpenCall{Name: name, Writable: writable})

	var next uint32 = 1
	for uid := range p.Messages {
		if uid >= next {
			next = uid + 1
		}
	}
	return provider.Status{
		UIDValidity: p.UIDValidity,
		Messages:    uint32(len(p.Messages)),
		UIDNext:     next,
	}, nil
}

// UIDs mimics a server answering "n:*": the highest UID is always
// included, even when it lies below the range start.
func (p *Provider) UIDs(_ context.Context, r provider.UIDRange) ([]uint32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return nil, provider.ErrNotConnected
	}

	var uids []uint32
	var highest uint32
	for uid := range p.Messages {
		highest = max(highest, uid)
		if r.Contains(uid) {
			uids = append(uids, uid)
		}
	}
	if r.From != 0 && r.To == 0 && highest != 0 && highest < r.From {
		uids = append(uids, highest)
	}
	slices.Sort(uids)
	return uids, nil
}

func (p *Provider) Fetch(_ context.Context, uids []uint32, fields provider.Field) ([]model.RemoteMessage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return nil, provider.ErrNotConnected
	}
	p.Fetches = append(p.Fetches, FetchCall{UIDs: slices.Clone(uids), Fields: fields})
	if p.FetchErr != nil {
		return nil, p.FetchErr
	}

	var out []model.RemoteMessage
	for _, uid := range uids {
		msg, ok := p.Messages[uid]
		if !ok {
			continue
		}
		rm := model.RemoteMessage{UID: uid, MessageID: msg.MessageID}
		if fields.Has(provider.FieldFlags) {
			rm.Flags = slices.Clone(msg.Flags)
		}
		if fields.Has(provider.FieldLabels) {
			rm.Labels = slices.Clone(msg.Labels)
		}
		if fields.Has(provider.FieldBody) {
			rm.Body = slices.Clone(msg.Body)
		}
		out = append(out, rm)
	}
	slices.SortFunc(out, func(a, b model.RemoteMessage) int {
		return cmp.Compare(a.UID, b.UID)
	})
	return out, nil
}

func (p *Provider) Store(_ context.Context, uid uint32, field provider.Field, oldValues, newValues []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return provider.ErrNotConnected
	}
	if p.StoreErr != nil {
		return p.StoreErr
	}
	p.Stores = append(p.Stores, StoreCall{
		UID:   uid,
		Field: field,
		Old:   slices.Clone(oldValues),
		New:   slices.Clone(newValues),
	})

	msg, ok := p.Messages[uid]
	if !ok {
		return nil
	}
	add, remove := provider.Delta(oldValues, newValues)
	switch field {
	case provider.FieldFlags:
		msg.Flags = apply(msg.Flags, add, remove)
	case provider.FieldLabels:
		msg.Labels = apply(msg.Labels, add, remove)
	}
	return nil
}

func apply(values, add, remove []string) []string {
	out := slices.DeleteFunc(slices.Clone(values), func(v string) bool {
		return slices.Contains(remove, v)
	})
	for _, v := range add {
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

func (p *Provider) ToTag(name string) string {
	if p.ToTagFunc != nil {
		return p.ToTagFunc(name)
	}
	if provider.IsInboxName(name) {
		return ""
	}
	return name
}

func (p *Provider) TagToFlag(tag string) string {
	return p.TagFlags[tag]
}

func (p *Provider) TagToLabel(tag string) string {
	return p.TagLabels[tag]
}

var _ provider.Provider = (*Provider)(nil)
