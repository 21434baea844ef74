package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jomei/notionapi"
)

// Notion limits a single rich text object to 2000 characters.
const notionTextLimit = 2000

// NotionService defines the subset of the Notion API used by NotionNotifier.
// This interface enables mocking and testing of Notion operations.
type NotionService interface {
	// CreatePage creates a new page in a Notion database with the given properties.
	CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error)
}

// NotionClient is the concrete implementation of NotionService using the Notion SDK.
type NotionClient struct {
	client *notionapi.Client
}

// NewNotionClient creates a new NotionClient with the provided API token.
func NewNotionClient(token string) *NotionClient {
	return &NotionClient{
		client: notionapi.NewClient(notionapi.Token(token)),
	}
}

// CreatePage creates a new page in a Notion database with the given properties.
func (n *NotionClient) CreatePage(ctx context.Context, databaseID string, properties notionapi.Properties) (*notionapi.Page, error) {
	req := &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(databaseID),
		},
		Properties: properties,
	}

	page, err := n.client.Page.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("CreatePage: %w", err)
	}

	return page, nil
}

// NotionNotifier records every message as a page in a Notion database. The
// destination is the database id. The database needs a "Name" title
// property, a "Message" text property and a "Received" date property.
type NotionNotifier struct {
	service NotionService
	now     func() time.Time
}

// NewNotionNotifier creates a notifier writing through service.
func NewNotionNotifier(service NotionService) *NotionNotifier {
	return &NotionNotifier{service: service, now: time.Now}
}

// Notify creates one page for the message.
func (n *NotionNotifier) Notify(ctx context.Context, databaseID, text string) error {
	props := MessageToNotionProperties(text, n.now())
	if _, err := n.service.CreatePage(ctx, databaseID, props); err != nil {
		return fmt.Errorf("Notify: %w", err)
	}
	return nil
}

// MessageToNotionProperties converts an HTML message to page properties.
// The stream header line becomes the title.
func MessageToNotionProperties(message string, received time.Time) notionapi.Properties {
	plain := strings.TrimSpace(PlainText(message))
	date := notionapi.Date(received)

	return notionapi.Properties{
		"Name": notionapi.TitleProperty{
			Title: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{
						Content: truncate(firstLine(plain), notionTextLimit),
					},
				},
			},
		},
		"Message": notionapi.RichTextProperty{
			RichText: []notionapi.RichText{
				{
					Type: notionapi.ObjectTypeText,
					Text: &notionapi.Text{
						Content: truncate(plain, notionTextLimit),
					},
				},
			},
		},
		"Received": notionapi.DateProperty{
			Date: &notionapi.DateObject{
				Start: &date,
			},
		},
	}
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
