package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/wI2L/jsondiff"
	"gopkg.in/yaml.v3"

	"github.com/bizdash/orgsync/modules/org/presentation/dtos"
	"github.com/bizdash/orgsync/modules/org/presentation/mappers"
)

func newSyncCmd() *cobra.Command {
	var (
		tenantID         string
		file             string
		apply            bool
		expectedRevision int64
		requestID        string
		diff             bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize a tenant's hierarchy with a forest file (dry-run unless --apply)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tid, err := parseTenant(tenantID)
			if err != nil {
				return err
			}
			body, err := readSyncFile(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			if requestID == "" {
				requestID = uuid.NewString()
			}
			req, err := mappers.SyncRequest(body, requestID)
			if err != nil {
				return withCode(exitValidation, err)
			}
			req.DryRun = !apply
			if cmd.Flags().Changed("expected-revision") {
				req.ExpectedRevision = &expectedRevision
			}

			ctx, rt, err := openRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			svc := rt.hierarchyService()
			start := time.Now()
			var before []*dtos.UnitDTO
			if diff {
				view, err := svc.GetHierarchy(ctx, tid)
				if err != nil {
					return serviceExit(err)
				}
				before = mappers.HierarchyToDTO(view).Units
			}
			res, err := svc.Synchronize(ctx, tid, req)
			if err != nil {
				return serviceExit(err)
			}
			out := syncOutput{SyncResponseDTO: mappers.SyncResultToDTO(res)}
			if diff {
				patch, err := forestDiff(before, mappers.UnitTree(res.Units))
				if err != nil {
					return err
				}
				out.Diff = patch
			}
			return writeJSON(cmd.OutOrStdout(), commandOutput{
				Command:    "sync",
				DurationMS: time.Since(start).Milliseconds(),
				Result:     out,
			})
		},
	}

	cmd.Flags().StringVar(&tenantID, "tenant", "", "Tenant UUID (required)")
	cmd.Flags().StringVar(&file, "file", "", "Forest JSON or YAML file, - for stdin (required)")
	cmd.Flags().BoolVar(&apply, "apply", false, "Apply changes (default dry-run)")
	cmd.Flags().Int64Var(&expectedRevision, "expected-revision", 0, "Fail unless the tenant is at this revision")
	cmd.Flags().StringVar(&requestID, "request-id", "", "Request id recorded in logs and audit (optional)")
	cmd.Flags().BoolVar(&diff, "diff", false, "Include a JSON Patch from the current forest to the synchronized one")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

type syncOutput struct {
	*dtos.SyncResponseDTO
	Diff jsondiff.Patch `json:"diff,omitempty"`
}

// forestDiff returns the RFC 6902 patch turning before into after.
func forestDiff(before, after []*dtos.UnitDTO) (jsondiff.Patch, error) {
	if before == nil {
		before = []*dtos.UnitDTO{}
	}
	if after == nil {
		after = []*dtos.UnitDTO{}
	}
	patch, err := jsondiff.Compare(before, after)
	if err != nil {
		return nil, fmt.Errorf("diff forest: %w", err)
	}
	return patch, nil
}

func parseTenant(v string) (uuid.UUID, error) {
	tid, err := uuid.Parse(strings.TrimSpace(v))
	if err != nil || tid == uuid.Nil {
		return uuid.Nil, withCode(exitUsage, fmt.Errorf("invalid --tenant %q", v))
	}
	return tid, nil
}

// readSyncFile accepts either a request object ({"units": [...]}) or a bare
// array of root units. Files ending in .yaml or .yml are converted to JSON
// first so both formats go through the same strict decoding.
func readSyncFile(stdin io.Reader, path string) (*dtos.SyncRequestDTO, error) {
	var raw []byte
	var err error
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, withCode(exitUsage, fmt.Errorf("read %s: %w", path, err))
	}

	if ext := strings.ToLower(filepath.Ext(path)); ext == ".yaml" || ext == ".yml" {
		raw, err = yamlToJSON(raw)
		if err != nil {
			return nil, withCode(exitValidation, fmt.Errorf("parse %s: %w", path, err))
		}
	}

	raw = bytes.TrimSpace(raw)
	out := &dtos.SyncRequestDTO{}
	if len(raw) > 0 && raw[0] == '[' {
		err = decodeStrict(raw, &out.Units)
	} else {
		err = decodeStrict(raw, out)
	}
	if err != nil {
		return nil, withCode(exitValidation, fmt.Errorf("parse %s: %w", path, err))
	}
	if out.Units == nil {
		return nil, withCode(exitValidation, fmt.Errorf("parse %s: units is required", path))
	}
	return out, nil
}

func decodeStrict(raw []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("trailing data")
	}
	return nil
}

func yamlToJSON(raw []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}
