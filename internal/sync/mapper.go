package sync

import (
	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/provider"
)

// Mapper translates between a message's flags and labels and the state
// of its topic, using the vocabulary of one provider.
type Mapper struct {
	prov        provider.Provider
	mailboxName string
}

// NewMapper creates a mapper for the named mailbox.
func NewMapper(prov provider.Provider, mailboxName string) Mapper {
	return Mapper{prov: prov, mailboxName: mailboxName}
}

// EmailArchived reports whether labels place the message outside the
// inbox.
func EmailArchived(labels []string) bool {
	return !provider.HasInbox(labels)
}

// Tags computes the topic tags of a message: the mailbox name, then each
// flag, then each label, mapped through the provider. Blank and duplicate
// tags are dropped.
func (m Mapper) Tags(flags, labels []string) []string {
	tags := make([]string, 0, 1+len(flags)+len(labels))
	tags = append(tags, m.prov.ToTag(m.mailboxName))
	for _, f := range flags {
		tags = append(tags, m.prov.ToTag(f))
	}
	for _, l := range labels {
		tags = append(tags, m.prov.ToTag(l))
	}
	return provider.Compact(tags)
}

// OutboundFlags derives the flags a topic's tags ask for.
func (m Mapper) OutboundFlags(tags []string) []string {
	flags := make([]string, 0, len(tags))
	for _, tag := range tags {
		flags = append(flags, m.prov.TagToFlag(tag))
	}
	return provider.Compact(flags)
}

// OutboundLabels derives the labels a topic asks for: one per tag that
// maps to a label, plus the inbox label unless the topic is archived.
func (m Mapper) OutboundLabels(topic *model.Topic) []string {
	labels := make([]string, 0, len(topic.Tags)+1)
	for _, tag := range topic.Tags {
		labels = append(labels, m.prov.TagToLabel(tag))
	}
	if !topic.Archived {
		labels = append(labels, provider.LabelInbox)
	}
	return provider.Compact(labels)
}

// sameTags reports whether a and b hold the same set of tags.
func sameTags(a, b []string) bool {
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	other := make(map[string]bool, len(b))
	for _, t := range b {
		if !set[t] {
			return false
		}
		other[t] = true
	}
	return len(set) == len(other)
}
