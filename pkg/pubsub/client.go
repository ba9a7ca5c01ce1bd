package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNoTopics          = errors.New("pubsub topic name is required")
	errClosed            = errors.New("pubsub client not initialized")
)

// Client owns the Pub/Sub connection of the outbox publisher. Topics are
// resolved to full resource names once, at construction.
type Client struct {
	sdk     *pubsub.Client
	project string
	topics  []string
	ordered bool
}

// NewClient dials Pub/Sub and fails unless every configured topic already
// exists. Topics are provisioned out of band.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errProjectIDRequired
	}
	topics := resolveTopics(project, cfg.OrdersTopic, cfg.InventoryTopic)
	if len(topics) == 0 {
		return nil, errNoTopics
	}

	sdk, err := pubsub.NewClient(ctx, project, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	c := &Client{sdk: sdk, project: project, topics: topics, ordered: cfg.Ordered}
	if err := c.Ping(ctx); err != nil {
		_ = sdk.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"topics":  topics,
			"ordered": cfg.Ordered,
		}), "pubsub client ready")
	}
	return c, nil
}

// clientOptions picks inline credentials, then a key file, then application
// default credentials. PUBSUB_EMULATOR_HOST is honoured by the SDK itself.
func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	if raw := strings.TrimSpace(gcp.CredentialsJSON); raw != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(raw))}
	}
	if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

func resolveTopics(project string, names ...string) []string {
	var out []string
	for _, name := range names {
		if full := topicResourceName(project, name); full != "" {
			out = append(out, full)
		}
	}
	return out
}

// Publisher returns a batching publisher for topic, which may be a short
// topic id or a full resource name. Callers must Stop it to flush.
func (c *Client) Publisher(topic string) *pubsub.Publisher {
	if c == nil || c.sdk == nil {
		return nil
	}
	full := topicResourceName(c.project, topic)
	if full == "" {
		return nil
	}
	pub := c.sdk.Publisher(full)
	pub.EnableMessageOrdering = c.ordered
	return pub
}

// Ordered reports whether publishers handed out by c accept ordering keys.
func (c *Client) Ordered() bool {
	return c != nil && c.ordered
}

// Ping checks that each configured topic is still there.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.sdk == nil {
		return errClosed
	}
	for _, topic := range c.topics {
		_, err := c.sdk.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: topic})
		switch {
		case status.Code(err) == codes.NotFound:
			return fmt.Errorf("topic %s does not exist", topic)
		case err != nil:
			return fmt.Errorf("checking topic %s: %w", topic, err)
		}
	}
	return nil
}

func (c *Client) Close() error {
	if c == nil || c.sdk == nil {
		return nil
	}
	return c.sdk.Close()
}

func topicResourceName(project, name string) string {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/topics/") {
		return name
	}
	project = strings.TrimSpace(project)
	if name == "" || project == "" {
		return ""
	}
	return "projects/" + project + "/topics/" + name
}
