package ipfs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/abevier/tsk/ratelimiter"

	iface "github.com/ipfs/boxo/coreiface"
	"github.com/ipfs/kubo/client/rpc"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/ceramicnetwork/go-fanout/models"
)

const defaultIpfsRateLimit = 16
const defaultIpfsBurstLimit = 16
const defaultIpfsLimiterMaxQueueDepth = 100
const defaultIpfsPublishPubsubTimeout = 30 * time.Second

type pubsubPublishTask struct {
	Topic string
	Data  []byte
}

// IpfsApi is a rate-limited pubsub client for a single IPFS node.
type IpfsApi struct {
	core          iface.CoreAPI
	logger        models.Logger
	addrStr       string
	metricService models.MetricService
	limiter       *ratelimiter.RateLimiter[pubsubPublishTask, struct{}]
}

func createCoreApi(addrStr string) (*rpc.HttpApi, error) {
	addr, err := ma.NewMultiaddr(addrStr)
	if err != nil {
		// Not a multiaddress, try it as a URL
		c := &http.Client{
			Transport: &http.Transport{
				Proxy:             http.ProxyFromEnvironment,
				DisableKeepAlives: true,
			},
		}
		return rpc.NewURLApiWithClient(addrStr, c)
	}
	return rpc.NewApi(addr)
}

func NewIpfsApiWithCore(logger models.Logger, addrStr string, coreApi iface.CoreAPI, metricService models.MetricService) *IpfsApi {
	ipfs := IpfsApi{core: coreApi, logger: logger, addrStr: addrStr, metricService: metricService}
	limiterOpts := ratelimiter.Opts{
		Limit:             defaultIpfsRateLimit,
		Burst:             defaultIpfsBurstLimit,
		MaxQueueDepth:     defaultIpfsLimiterMaxQueueDepth,
		FullQueueStrategy: ratelimiter.BlockWhenFull,
	}
	ipfs.limiter = ratelimiter.New(limiterOpts, ipfs.pubsubPublish)
	return &ipfs
}

func NewIpfsApi(logger models.Logger, addrStr string, metricService models.MetricService) (*IpfsApi, error) {
	coreApi, err := createCoreApi(addrStr)
	if err != nil {
		return nil, fmt.Errorf("error creating ipfs client at %s: %w", addrStr, err)
	}
	return NewIpfsApiWithCore(logger, addrStr, coreApi, metricService), nil
}

func (i *IpfsApi) Publish(ctx context.Context, topic string, data []byte) error {
	if _, err := i.limiter.Submit(ctx, pubsubPublishTask{Topic: topic, Data: data}); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			i.metricService.Count(ctx, models.MetricName_TransportExpired, 1)
		}
		return err
	}
	return nil
}

func (i *IpfsApi) pubsubPublish(ctx context.Context, task pubsubPublishTask) (struct{}, error) {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, defaultIpfsPublishPubsubTimeout)
	defer cancel()

	i.logger.Debugf("publishing %d bytes to ipfs pubsub topic %s on %s", len(task.Data), task.Topic, i.addrStr)
	if err := i.core.PubSub().Publish(ctxWithTimeout, task.Topic, task.Data); err != nil {
		i.metricService.Count(ctx, models.MetricName_TransportError, 1)
		return struct{}{}, fmt.Errorf("publishing message to pubsub failed on ipfs instance at %s: %w", i.addrStr, err)
	}
	return struct{}{}, nil
}
