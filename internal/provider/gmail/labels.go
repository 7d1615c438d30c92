package gmail

import (
	"context"
	"strings"

	gmailapi "google.golang.org/api/gmail/v1"
)

const apiUser = "me"

// LabelService is the slice of the Gmail API the provider uses.
type LabelService interface {
	ListLabels(ctx context.Context) ([]*gmailapi.Label, error)
	CreateLabel(ctx context.Context, name string) (*gmailapi.Label, error)

	// FindMessages returns the Gmail ids of the messages carrying any of
	// the given RFC 5322 Message-IDs.
	FindMessages(ctx context.Context, messageIDs []string) ([]string, error)

	// MessageMeta returns the Message-ID, without angle brackets, and the
	// label ids of a message.
	MessageMeta(ctx context.Context, id string) (messageID string, labelIDs []string, err error)

	Modify(ctx context.Context, id string, add, remove []string) error
}

// apiLabels implements LabelService with the Gmail REST API.
type apiLabels struct {
	svc *gmailapi.Service
}

func (a *apiLabels) ListLabels(ctx context.Context) ([]*gmailapi.Label, error) {
	resp, err := a.svc.Users.Labels.List(apiUser).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Labels, nil
}

func (a *apiLabels) CreateLabel(ctx context.Context, name string) (*gmailapi.Label, error) {
	return a.svc.Users.Labels.Create(apiUser, &gmailapi.Label{
		Name:                  name,
		LabelListVisibility:   "labelShow",
		MessageListVisibility: "show",
	}).Context(ctx).Do()
}

func (a *apiLabels) FindMessages(ctx context.Context, messageIDs []string) ([]string, error) {
	terms := make([]string, 0, len(messageIDs))
	for _, id := range messageIDs {
		terms = append(terms, "rfc822msgid:"+id)
	}

	var ids []string
	call := a.svc.Users.Messages.List(apiUser).
		Q("{" + strings.Join(terms, " ") + "}").
		IncludeSpamTrash(true).
		MaxResults(100)
	err := call.Pages(ctx, func(page *gmailapi.ListMessagesResponse) error {
		for _, m := range page.Messages {
			ids = append(ids, m.Id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (a *apiLabels) MessageMeta(ctx context.Context, id string) (string, []string, error) {
	msg, err := a.svc.Users.Messages.Get(apiUser, id).
		Format("metadata").
		MetadataHeaders("Message-ID").
		Context(ctx).
		Do()
	if err != nil {
		return "", nil, err
	}

	var messageID string
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			if strings.EqualFold(h.Name, "Message-ID") {
				messageID = strings.Trim(strings.TrimSpace(h.Value), "<>")
				break
			}
		}
	}
	return messageID, msg.LabelIds, nil
}

func (a *apiLabels) Modify(ctx context.Context, id string, add, remove []string) error {
	_, err := a.svc.Users.Messages.Modify(apiUser, id, &gmailapi.ModifyMessageRequest{
		AddLabelIds:    add,
		RemoveLabelIds: remove,
	}).Context(ctx).Do()
	return err
}
