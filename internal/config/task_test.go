package config

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/caldera-rt/runner/internal/core"
)

const sampleTasksYAML = `
tasks:
  - id: 11111111-1111-1111-1111-111111111111
    actions:
      blocking:
        - id: 22222222-2222-2222-2222-222222222222
          data:
            start-component: { component-id: 33333333-3333-3333-3333-333333333333 }
        - id: 44444444-4444-4444-4444-444444444444
          data:
            add-route:
              source: { endpoint: { component-id: 33333333-3333-3333-3333-333333333333 }, channel-id: 1 }
              target: { endpoint: runner, channel-id: 2 }
        - id: 55555555-5555-5555-5555-555555555555
          data:
            set-schedule:
              deadline: 1000
              major-frames:
                - minor-frames:
                    - { component-id: 33333333-3333-3333-3333-333333333333, deadline: 500 }
  - id: 66666666-6666-6666-6666-666666666666
    actions:
      non-blocking:
        - id: 77777777-7777-7777-7777-777777777777
          data:
            add-component: { component-id: 88888888-8888-8888-8888-888888888888, component: /opt/plant/bin, core: 3, version: "1.0" }
        - id: 99999999-9999-9999-9999-999999999999
          data:
            wait-state-sync: { state-sync-id: aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa }
`

func TestParseTasksDocumentBlockingAndNonBlocking(t *testing.T) {
	var doc TasksDocument
	if err := yaml.Unmarshal([]byte(sampleTasksYAML), &doc); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if len(doc.Tasks) != 2 {
		t.Fatalf("got %d tasks, want 2", len(doc.Tasks))
	}

	blocking := doc.Tasks[0].Actions.Blocking
	if len(blocking) != 3 {
		t.Fatalf("got %d blocking actions, want 3", len(blocking))
	}
	if blocking[0].Data.Kind != ActionStartComponent || blocking[0].Data.StartComponent == nil {
		t.Fatalf("action 0: got %+v, want start-component", blocking[0].Data)
	}
	if blocking[1].Data.Kind != ActionAddRoute || blocking[1].Data.AddRoute == nil {
		t.Fatalf("action 1: got %+v, want add-route", blocking[1].Data)
	}
	if blocking[1].Data.AddRoute.Target.Endpoint.Kind != core.EndpointRunner {
		t.Fatalf("target endpoint kind = %v, want Runner", blocking[1].Data.AddRoute.Target.Endpoint.Kind)
	}
	if blocking[2].Data.Kind != ActionSetSchedule || blocking[2].Data.SetSchedule == nil {
		t.Fatalf("action 2: got %+v, want set-schedule", blocking[2].Data)
	}
	sched := blocking[2].Data.SetSchedule.ToCore()
	if sched.Period != 1000 || len(sched.MajorFrames) != 1 || len(sched.MajorFrames[0].Minors) != 1 {
		t.Fatalf("got schedule %+v", sched)
	}

	nonBlocking := doc.Tasks[1].Actions.NonBlocking
	if len(nonBlocking) != 2 {
		t.Fatalf("got %d non-blocking actions, want 2", len(nonBlocking))
	}
	if nonBlocking[0].Data.Kind != ActionAddComponent || nonBlocking[0].Data.AddComponent.Core != 3 {
		t.Fatalf("action 0: got %+v", nonBlocking[0].Data)
	}
	if nonBlocking[1].Data.Kind != ActionWaitStateSync {
		t.Fatalf("action 1: got %+v, want wait-state-sync", nonBlocking[1].Data)
	}
}

func TestActionsRejectsBothBlockingAndNonBlocking(t *testing.T) {
	const bad = `
tasks:
  - id: 11111111-1111-1111-1111-111111111111
    actions:
      blocking:
        - id: 22222222-2222-2222-2222-222222222222
          data:
            stop-component: { component-id: 33333333-3333-3333-3333-333333333333 }
      non-blocking:
        - id: 44444444-4444-4444-4444-444444444444
          data:
            wait-state-sync: { state-sync-id: 55555555-5555-5555-5555-555555555555 }
`
	var doc TasksDocument
	if err := yaml.Unmarshal([]byte(bad), &doc); err == nil {
		t.Fatal("expected error for actions with both blocking and non-blocking")
	}
}

func TestActionDataRejectsMultipleVariants(t *testing.T) {
	const bad = `
tasks:
  - id: 11111111-1111-1111-1111-111111111111
    actions:
      blocking:
        - id: 22222222-2222-2222-2222-222222222222
          data:
            stop-component: { component-id: 33333333-3333-3333-3333-333333333333 }
            start-component: { component-id: 33333333-3333-3333-3333-333333333333 }
`
	var doc TasksDocument
	if err := yaml.Unmarshal([]byte(bad), &doc); err == nil {
		t.Fatal("expected error for multi-variant action data")
	}
}

func TestLoadTasksDocumentFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "tasks.yaml")
	if err := os.WriteFile(path, []byte(sampleTasksYAML), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	doc, err := LoadTasksDocument(path)
	if err != nil {
		t.Fatalf("LoadTasksDocument: %v", err)
	}
	if len(doc.Tasks) != 2 {
		t.Fatalf("got %d tasks, want 2", len(doc.Tasks))
	}
}

func TestLoadTasksDocumentMissingFile(t *testing.T) {
	if _, err := LoadTasksDocument("/nonexistent/tasks.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
