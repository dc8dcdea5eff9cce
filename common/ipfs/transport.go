package ipfs

import (
	"context"
	"os"
	"sync"

	"github.com/ceramicnetwork/go-fanout"
	"github.com/ceramicnetwork/go-fanout/models"
)

const defaultRecordTopic = "/fanout/records"
const defaultInboxPrefix = "/fanout/inbox/"

var _ models.Transport = &RelayTransport{}
var _ models.Transport = &InboxTransport{}

type apiFactory func(addrStr string) (*IpfsApi, error)

// RelayTransport treats every target address as an IPFS node and publishes records to the shared record topic on
// that node. Node clients are created on first use.
type RelayTransport struct {
	topic  string
	newApi apiFactory
	lock   sync.Mutex
	nodes  map[string]*IpfsApi
}

func NewRelayTransport(logger models.Logger, metricService models.MetricService) *RelayTransport {
	topic := defaultRecordTopic
	if configTopic, found := os.LookupEnv(fanout.Env_IpfsRecordTopic); found {
		topic = configTopic
	}
	return &RelayTransport{
		topic: topic,
		newApi: func(addrStr string) (*IpfsApi, error) {
			return NewIpfsApi(logger, addrStr, metricService)
		},
		nodes: make(map[string]*IpfsApi),
	}
}

func (r *RelayTransport) Send(ctx context.Context, address string, payload []byte) error {
	node, err := r.node(address)
	if err != nil {
		return err
	}
	return node.Publish(ctx, r.topic, payload)
}

func (r *RelayTransport) node(address string) (*IpfsApi, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if node, found := r.nodes[address]; found {
		return node, nil
	}
	node, err := r.newApi(address)
	if err != nil {
		return nil, err
	}
	r.nodes[address] = node
	return node, nil
}

// InboxTransport delivers to counterparties through one IPFS node, using one pubsub topic per recipient.
type InboxTransport struct {
	api    *IpfsApi
	prefix string
}

func NewInboxTransport(api *IpfsApi) *InboxTransport {
	prefix := defaultInboxPrefix
	if configPrefix, found := os.LookupEnv(fanout.Env_IpfsInboxPrefix); found {
		prefix = configPrefix
	}
	return &InboxTransport{api, prefix}
}

func (i *InboxTransport) Send(ctx context.Context, counterpartyId string, payload []byte) error {
	return i.api.Publish(ctx, i.prefix+counterpartyId, payload)
}
