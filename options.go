package s3transfer

import (
	"crypto/tls"

	"github.com/s3transfer/s3transfer/internal/clock"
	"github.com/s3transfer/s3transfer/retrystrategy"
	"github.com/s3transfer/s3transfer/s3http"
	"github.com/s3transfer/s3transfer/signing"
)

type clientOptions struct {
	throughputTargetGbps     float64
	numConnectionsPerVIP     int
	maxRequestsPerConnection int
	maxRetries               int
	partSize                 int64
	maxPartSize              int64
	bodyEventLoops           int
	maxPendingRequests       int

	bucket        string
	endpointHost  string
	tlsConfig     *tls.Config
	transport     s3http.Transport
	hostListener  s3http.HostListener
	signer        signing.Signer
	signingConfig signing.Config
	retryStrategy retrystrategy.Strategy
	clock         clock.Clock
}

func defaultClientOptions() clientOptions {
	return clientOptions{
		throughputTargetGbps:     defaultThroughputTargetGbps,
		numConnectionsPerVIP:     defaultNumConnectionsPerVIP,
		maxRequestsPerConnection: defaultMaxRequestsPerConnection,
		maxRetries:               retrystrategy.DefaultMaxRetries,
		partSize:                 defaultPartSize,
		maxPartSize:              defaultMaxPartSize,
		bodyEventLoops:           defaultBodyEventLoops,
	}
}

// ClientOption configures a Client at construction time, in the
// teacher's functional-options style (client.go's clientOptionFunc).
type ClientOption func(*clientOptions)

// WithBucket sets the bucket this client will address. Required: the
// client resolves and pools connections against exactly one bucket's
// virtual-hosted endpoint (see DESIGN.md for this simplification).
func WithBucket(name string) ClientOption {
	return func(o *clientOptions) { o.bucket = name }
}

// WithEndpointHost overrides the computed
// "{bucket}.s3.{region}.amazonaws.com" virtual host, e.g. for testing
// against a non-AWS S3-compatible endpoint.
func WithEndpointHost(host string) ClientOption {
	return func(o *clientOptions) { o.endpointHost = host }
}

// WithThroughputTargetGbps sets the aggregate throughput the client
// should provision VIPs for. Defaults to 5.0.
func WithThroughputTargetGbps(gbps float64) ClientOption {
	return func(o *clientOptions) { o.throughputTargetGbps = gbps }
}

// WithConnectionsPerVIP overrides how many pooled connections each VIP
// gets. Defaults to 10.
func WithConnectionsPerVIP(n int) ClientOption {
	return func(o *clientOptions) { o.numConnectionsPerVIP = n }
}

// WithMaxRequestsPerConnection overrides the soft per-connection recycle
// cap. Defaults to 100.
func WithMaxRequestsPerConnection(n int) ClientOption {
	return func(o *clientOptions) { o.maxRequestsPerConnection = n }
}

// WithMaxRetries overrides the default retry strategy's attempt budget.
// Ignored if WithRetryStrategy is also supplied.
func WithMaxRetries(n int) ClientOption {
	return func(o *clientOptions) { o.maxRetries = n }
}

// WithPartSize overrides the default part size used by auto-ranged GET
// and PUT, in bytes. Defaults to 5 MiB.
func WithPartSize(bytes int64) ClientOption {
	return func(o *clientOptions) { o.partSize = bytes }
}

// WithMaxPartSize overrides the largest part size MakeMetaRequest accepts
// for an auto-ranged GET or PUT; a larger part size is rejected.
// Defaults to 20 MiB.
func WithMaxPartSize(bytes int64) ClientOption {
	return func(o *clientOptions) { o.maxPartSize = bytes }
}

// WithTLSConfig overrides the TLS configuration used by the default
// transport. Ignored if WithTransport is also supplied.
func WithTLSConfig(cfg *tls.Config) ClientOption {
	return func(o *clientOptions) { o.tlsConfig = cfg }
}

// WithTransport overrides the default net/http-based transport, e.g. for
// tests or a custom connection strategy.
func WithTransport(t s3http.Transport) ClientOption {
	return func(o *clientOptions) { o.transport = t }
}

// WithHostListener overrides the default DNS-polling host listener.
func WithHostListener(l s3http.HostListener) ClientOption {
	return func(o *clientOptions) { o.hostListener = l }
}

// WithSigner supplies the collaborator that signs every outgoing
// request. Required: there is no default signer, since signing is
// inherently credential-specific (spec §6).
func WithSigner(s signing.Signer) ClientOption {
	return func(o *clientOptions) { o.signer = s }
}

// WithSigningConfig supplies the signing configuration (region,
// service, credentials) that will be deep-copied into the client's
// signing.Cache at construction (spec §4.7).
func WithSigningConfig(cfg signing.Config) ClientOption {
	return func(o *clientOptions) { o.signingConfig = cfg }
}

// WithRetryStrategy overrides the default exponential-backoff-with-
// jitter retry strategy.
func WithRetryStrategy(s retrystrategy.Strategy) ClientOption {
	return func(o *clientOptions) { o.retryStrategy = s }
}

// WithBodyEventLoops sets the width of the event loop group used to
// deliver ordered part bodies to caller callbacks, decoupling slow user
// callbacks from the work loop (spec §5).
func WithBodyEventLoops(n int) ClientOption {
	return func(o *clientOptions) { o.bodyEventLoops = n }
}

// WithMaxPendingRequests overrides the soft cap on Requests allocated but
// not yet destroyed (their data delivered to the caller or discarded).
// This bounds memory held by completed-but-undelivered parts
// independent of connection count or WithConnectionsPerVIP, guarding
// against a slow OnBody consumer letting a fast auto-ranged GET buffer
// unboundedly many finished parts. Defaults to four times the VIP pool's
// maxRequestsInFlight.
func WithMaxPendingRequests(n int) ClientOption {
	return func(o *clientOptions) { o.maxPendingRequests = n }
}

// withClock is unexported: only tests substitute a fake clock.
func withClock(c clock.Clock) ClientOption {
	return func(o *clientOptions) { o.clock = c }
}
