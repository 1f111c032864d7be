package swarm

import (
	"context"
	"io"

	"github.com/mirrorleech/mirror_relay/internal/telemetry"
)

// InstrumentedEngine wraps an Engine with telemetry.
type InstrumentedEngine struct {
	engine     Engine
	telemetry  *telemetry.Telemetry
	engineType string
}

var _ Engine = (*InstrumentedEngine)(nil)

func NewInstrumentedEngine(engine Engine, tel *telemetry.Telemetry, engineType string) *InstrumentedEngine {
	return &InstrumentedEngine{
		engine:     engine,
		telemetry:  tel,
		engineType: engineType,
	}
}

func (e *InstrumentedEngine) AddTransferURL(ctx context.Context, link string) (int64, error) {
	var result int64

	var err error

	instrumentedErr := e.telemetry.InstrumentClientOperation(ctx, e.engineType, "add_transfer_url", func(ctx context.Context) error {
		result, err = e.engine.AddTransferURL(ctx, link)

		return err
	})

	if instrumentedErr != nil {
		return 0, instrumentedErr
	}

	e.telemetry.RecordTransfer(ctx, "add", "success")

	return result, nil
}

func (e *InstrumentedEngine) AddTransferBytes(ctx context.Context, torrent []byte, filename string) (int64, error) {
	var result int64

	var err error

	instrumentedErr := e.telemetry.InstrumentClientOperation(ctx, e.engineType, "add_transfer_bytes", func(ctx context.Context) error {
		result, err = e.engine.AddTransferBytes(ctx, torrent, filename)

		return err
	})

	if instrumentedErr != nil {
		return 0, instrumentedErr
	}

	e.telemetry.RecordTransfer(ctx, "add", "success")

	return result, nil
}

func (e *InstrumentedEngine) Status(ctx context.Context, transferID int64) (Status, error) {
	var result Status

	var err error

	instrumentedErr := e.telemetry.InstrumentClientOperation(ctx, e.engineType, "status", func(ctx context.Context) error {
		result, err = e.engine.Status(ctx, transferID)

		return err
	})

	if instrumentedErr != nil {
		return Status{}, instrumentedErr
	}

	return result, nil
}

func (e *InstrumentedEngine) Files(ctx context.Context, transferID int64) ([]RemoteFile, error) {
	var result []RemoteFile

	var err error

	instrumentedErr := e.telemetry.InstrumentClientOperation(ctx, e.engineType, "files", func(ctx context.Context) error {
		result, err = e.engine.Files(ctx, transferID)

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}

func (e *InstrumentedEngine) GrabFile(ctx context.Context, file RemoteFile) (io.ReadCloser, error) {
	var result io.ReadCloser

	var err error

	instrumentedErr := e.telemetry.InstrumentClientOperation(ctx, e.engineType, "grab_file", func(ctx context.Context) error {
		result, err = e.engine.GrabFile(ctx, file)

		return err
	})

	if instrumentedErr != nil {
		return nil, instrumentedErr
	}

	return result, nil
}

func (e *InstrumentedEngine) RemoveTransfer(ctx context.Context, transferID int64) error {
	err := e.telemetry.InstrumentClientOperation(ctx, e.engineType, "remove_transfer", func(ctx context.Context) error {
		return e.engine.RemoveTransfer(ctx, transferID)
	})

	status := "success"
	if err != nil {
		status = "error"
	}

	e.telemetry.RecordTransfer(ctx, "remove", status)

	return err
}
