package engine

import (
	"context"
	"io"

	"github.com/NodePath81/cfspeed/internal/upload"
	"github.com/NodePath81/cfspeed/internal/util"
)

// Uploader sends one request body to the upload endpoint.
type Uploader interface {
	Upload(ctx context.Context, body io.Reader) error
}

// UploaderFactory builds the uploader owned by worker id.
type UploaderFactory func(id int) Uploader

type closer interface {
	Close()
}

func uploadWorker(ctx context.Context, wc *WorkerContext, up Uploader, bytes int64, logger util.Logger, id int) error {
	if c, ok := up.(closer); ok {
		defer c.Close()
	}
	for !wc.Stopped() && ctx.Err() == nil {
		src := upload.NewSource(bytes, wc, wc.Stopped)
		err := up.Upload(ctx, src)
		if err == nil {
			continue
		}
		switch {
		case ctx.Err() != nil:
		case wc.Stopped():
			logger.Debug("upload ended after stop", "worker", id, "error", err)
		default:
			logger.Error("upload failed", "worker", id, "sent", src.Produced(), "error", err)
		}
		if !wc.sleep(ctx, reconnectBackoff) {
			return nil
		}
	}
	return nil
}
