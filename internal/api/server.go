package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgnsrekt/replay_capture/internal/cdpcontrol"
	"github.com/dgnsrekt/replay_capture/internal/controller"
	"github.com/dgnsrekt/replay_capture/internal/relay"
	"github.com/dgnsrekt/replay_capture/internal/session"
	"github.com/dgnsrekt/replay_capture/internal/snapshot"
	"github.com/dgnsrekt/replay_capture/internal/storage"
)

type Service interface {
	Status(ctx context.Context) (controller.Status, error)
	StopSession(ctx context.Context, reason string) (session.Report, error)
	ListArtifacts(ctx context.Context) ([]storage.Artifact, error)
	ArtifactFor(ctx context.Context, identifier string) (string, error)
	ListSnapshots(ctx context.Context, sessionID string) ([]snapshot.Meta, error)
	GetSnapshot(ctx context.Context, id string) (snapshot.Meta, error)
	ReadSnapshotImage(ctx context.Context, id string) ([]byte, string, error)
	DeleteSnapshot(ctx context.Context, id string) error
}

// NewServer builds the control API. broker may be nil, which disables the
// event stream routes.
func NewServer(svc Service, broker *relay.Broker) http.Handler {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	cfg := huma.DefaultConfig("Replay Recorder Control API", "1.0.0")
	cfg.DocsPath = ""
	api := humachi.New(router, cfg)

	router.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if _, err := w.Write([]byte(docsHTML)); err != nil {
			slog.Debug("docs response write failed", "error", err)
		}
	})
	if broker != nil {
		router.Get("/api/v1/events", relay.SSEHandler(broker))
		router.Get("/api/v1/events/ws", relay.WebSocketHandler(broker))
	}

	registerSessionHandlers(api, svc)
	registerArtifactHandlers(api, svc)
	registerSnapshotHandlers(api, svc)

	return router
}

func registerSessionHandlers(api huma.API, svc Service) {
	type sessionStatusOutput struct {
		Body controller.Status
	}
	huma.Register(api, huma.Operation{OperationID: "get-status", Method: http.MethodGet, Path: "/api/v1/status", Summary: "Current item, session stage and batch summary", Tags: []string{"Session"}},
		func(ctx context.Context, input *struct{}) (*sessionStatusOutput, error) {
			st, err := svc.Status(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &sessionStatusOutput{}
			out.Body = st
			return out, nil
		})

	type sessionStopOutput struct {
		Body struct {
			Status  string         `json:"status"`
			Session session.Report `json:"session"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "stop-session", Method: http.MethodPost, Path: "/api/v1/session/stop", Summary: "Stop the active capture session", Description: "A session that is already recording is finalized and transcoded. A running batch stops after it.", Tags: []string{"Session"}},
		func(ctx context.Context, input *struct {
			Body struct {
				Reason string `json:"reason,omitempty" doc:"Free-form reason recorded in the session log"`
			} `required:"false"`
		}) (*sessionStopOutput, error) {
			rep, err := svc.StopSession(ctx, input.Body.Reason)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &sessionStopOutput{}
			out.Body.Status = "stopping"
			out.Body.Session = rep
			return out, nil
		})
}

func registerArtifactHandlers(api huma.API, svc Service) {
	type artifactListOutput struct {
		Body struct {
			Artifacts []storage.Artifact `json:"artifacts"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-artifacts", Method: http.MethodGet, Path: "/api/v1/artifacts", Summary: "List delivered recordings", Tags: []string{"Artifacts"}},
		func(ctx context.Context, input *struct{}) (*artifactListOutput, error) {
			arts, err := svc.ListArtifacts(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &artifactListOutput{}
			out.Body.Artifacts = arts
			if out.Body.Artifacts == nil {
				out.Body.Artifacts = []storage.Artifact{}
			}
			return out, nil
		})

	type artifactLookupOutput struct {
		Body struct {
			Identifier string `json:"identifier"`
			Path       string `json:"path"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "lookup-artifact", Method: http.MethodGet, Path: "/api/v1/artifacts/lookup", Summary: "Find the recording for a target identifier", Tags: []string{"Artifacts"}},
		func(ctx context.Context, input *struct {
			Identifier string `query:"identifier" required:"true" doc:"Target identifier as listed in the targets file"`
		}) (*artifactLookupOutput, error) {
			path, err := svc.ArtifactFor(ctx, input.Identifier)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &artifactLookupOutput{}
			out.Body.Identifier = input.Identifier
			out.Body.Path = path
			return out, nil
		})
}

func registerSnapshotHandlers(api huma.API, svc Service) {
	type snapshotListOutput struct {
		Body struct {
			Snapshots []snapshot.Meta `json:"snapshots"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-snapshots", Method: http.MethodGet, Path: "/api/v1/snapshots", Summary: "List unlock gesture snapshots", Tags: []string{"Snapshots"}},
		func(ctx context.Context, input *struct {
			SessionID string `query:"session_id" doc:"Only snapshots of this session"`
		}) (*snapshotListOutput, error) {
			metas, err := svc.ListSnapshots(ctx, input.SessionID)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &snapshotListOutput{}
			out.Body.Snapshots = metas
			if out.Body.Snapshots == nil {
				out.Body.Snapshots = []snapshot.Meta{}
			}
			return out, nil
		})

	type snapshotIDInput struct {
		SnapshotID string `path:"snapshot_id"`
	}
	type snapshotMetaOutput struct {
		Body snapshot.Meta
	}
	huma.Register(api, huma.Operation{OperationID: "get-snapshot-metadata", Method: http.MethodGet, Path: "/api/v1/snapshots/{snapshot_id}/metadata", Summary: "Get snapshot metadata", Tags: []string{"Snapshots"}},
		func(ctx context.Context, input *snapshotIDInput) (*snapshotMetaOutput, error) {
			meta, err := svc.GetSnapshot(ctx, input.SnapshotID)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &snapshotMetaOutput{}
			out.Body = meta
			return out, nil
		})

	type snapshotImageOutput struct {
		ContentType string `header:"Content-Type"`
		Body        []byte
	}
	huma.Register(api, huma.Operation{OperationID: "get-snapshot-image", Method: http.MethodGet, Path: "/api/v1/snapshots/{snapshot_id}/image", Summary: "Get annotated snapshot image", Tags: []string{"Snapshots"}},
		func(ctx context.Context, input *snapshotIDInput) (*snapshotImageOutput, error) {
			data, format, err := svc.ReadSnapshotImage(ctx, input.SnapshotID)
			if err != nil {
				return nil, mapErr(err)
			}
			return &snapshotImageOutput{ContentType: "image/" + format, Body: data}, nil
		})

	type snapshotDeleteOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "delete-snapshot", Method: http.MethodDelete, Path: "/api/v1/snapshots/{snapshot_id}", Summary: "Delete snapshot", Tags: []string{"Snapshots"}},
		func(ctx context.Context, input *snapshotIDInput) (*snapshotDeleteOutput, error) {
			if err := svc.DeleteSnapshot(ctx, input.SnapshotID); err != nil {
				return nil, mapErr(err)
			}
			out := &snapshotDeleteOutput{}
			out.Body.Status = "deleted"
			return out, nil
		})
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var coded *cdpcontrol.CodedError
	if errors.As(err, &coded) {
		switch coded.Code {
		case cdpcontrol.CodeValidation:
			return huma.Error400BadRequest(coded.Message)
		case cdpcontrol.CodeNotFound, cdpcontrol.CodeDisabled:
			return huma.Error404NotFound(coded.Message)
		case cdpcontrol.CodeConflict:
			return huma.Error409Conflict(coded.Message)
		case cdpcontrol.CodeEvalTimeout:
			return huma.Error504GatewayTimeout(coded.Message)
		case cdpcontrol.CodeCDPUnavailable:
			return huma.Error502BadGateway(coded.Message)
		default:
			return huma.Error500InternalServerError(fmt.Sprintf("%s: %s", coded.Code, coded.Message))
		}
	}
	return huma.Error500InternalServerError(err.Error())
}
