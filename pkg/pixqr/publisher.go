package pixqr

import (
	"context"
	"errors"
	"log/slog"
	"path"
	"strings"

	"github.com/dmitrymomot/billingkit/pkg/asaas"
	"github.com/dmitrymomot/billingkit/pkg/file"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/qrcode"
)

// ErrNoArtifact means the gateway returned neither an image nor a payload.
var ErrNoArtifact = errors.New("pix artifact has no image and no payload")

// Artifact is what billingkit stores for a PIX charge.
type Artifact struct {
	Payload  string
	ImageURL string
}

// Publisher turns the gateway PIX QR into a URL the chat front end can show.
// The PNG is uploaded to storage when one is configured; otherwise, or when
// the upload fails, a data URI is returned.
type Publisher struct {
	store  file.Storage
	prefix string
	size   int
	log    *slog.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithPrefix sets the object key prefix. Default "pix".
func WithPrefix(prefix string) Option {
	return func(p *Publisher) { p.prefix = strings.Trim(prefix, "/") }
}

// WithSize sets the edge length of locally rendered codes.
func WithSize(px int) Option {
	return func(p *Publisher) {
		if px > 0 {
			p.size = px
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Publisher) {
		if l != nil {
			p.log = l
		}
	}
}

// NewPublisher returns a Publisher. store may be nil.
func NewPublisher(store file.Storage, opts ...Option) *Publisher {
	p := &Publisher{
		store:  store,
		prefix: "pix",
		size:   qrcode.DefaultSize,
		log:    logger.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish stores the QR image for paymentID and returns the artifact.
func (p *Publisher) Publish(ctx context.Context, paymentID string, qr asaas.PixQRCode) (Artifact, error) {
	png, err := p.image(qr)
	if err != nil {
		return Artifact{}, err
	}
	out := Artifact{Payload: qr.Payload, ImageURL: qrcode.DataURI(png)}
	if p.store == nil {
		return out, nil
	}

	key := path.Join(p.prefix, paymentID+".png")
	url, err := p.store.Put(ctx, key, png, "image/png")
	if err != nil {
		p.log.WarnContext(ctx, "pix qr upload failed, using data uri",
			logger.PaymentID(paymentID),
			logger.Error(err),
		)
		return out, nil
	}
	out.ImageURL = url
	return out, nil
}

// image prefers the gateway-rendered PNG and renders the payload otherwise.
func (p *Publisher) image(qr asaas.PixQRCode) ([]byte, error) {
	if qr.EncodedImage != "" {
		if png, err := qrcode.DecodeBase64(qr.EncodedImage); err == nil {
			return png, nil
		}
	}
	if strings.TrimSpace(qr.Payload) == "" {
		return nil, ErrNoArtifact
	}
	return qrcode.Generate(qr.Payload, p.size)
}
