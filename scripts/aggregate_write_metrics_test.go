package main

import (
	"os"
	"path/filepath"
	"testing"
)

const servicesSrc = `package services

type receiptService struct {
	receipts  repos.ReceiptRepo
	products  repos.ProductRepo
	jobs      repos.JobRunRepo
	lifecycle domainagg.ReceiptLifecycleAggregate
}

func (s *receiptService) Upload() {
	s.receipts.Create(nil, nil)
	s.jobs.Create(nil, nil)
}

func (s *receiptService) Bypass() {
	s.receipts.UpdateFields(nil, nil, nil)
	s.products.IncrementQuantity(nil, nil, 1)
	_, _ = s.receipts.GetByID(nil, nil)
}

func (s *receiptService) Reprocess() {
	s.lifecycle.ResetForReprocess(nil, nil)
}
`

const reconcileSrc = `package reconcile

type Reconciler struct {
	agg domainagg.InventoryReconciliationAggregate
}

func (r *Reconciler) Confirm() {
	r.agg.ConfirmReceipt(nil, nil)
}

func (r Reconciler) untracked() {}
`

func writeSource(t *testing.T, root, dir, name, src string) {
	t.Helper()
	full := filepath.Join(root, dir)
	if err := os.MkdirAll(full, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(full, name), []byte(src), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestAnalyzeSeparatesRepoAndAggregateWrites(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "svc", "receipt.go", servicesSrc)
	writeSource(t, root, "svc", "receipt_test.go", "package services\n\nfunc ignored() {}\n")
	writeSource(t, root, "rec", "reconciler.go", reconcileSrc)

	report, err := analyze(root, []string{"svc", "rec", "missing"})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	if report.GuardedRepoWriteCallsites != 3 {
		t.Fatalf("guarded repo writes: got %d", report.GuardedRepoWriteCallsites)
	}
	if report.AggregateWriteCallsites != 2 {
		t.Fatalf("aggregate writes: got %d", report.AggregateWriteCallsites)
	}
	if report.MethodsWriting2PlusGuardedRepos != 1 {
		t.Fatalf("methods writing 2+ repos: got %d", report.MethodsWriting2PlusGuardedRepos)
	}
	if len(report.MethodsWithGuardedRepoWrites) != 2 {
		t.Fatalf("methods with repo writes: %+v", report.MethodsWithGuardedRepoWrites)
	}
	bypass := report.MethodsWithGuardedRepoWrites[1]
	if bypass.Method != "Bypass" || len(bypass.GuardedRepoWritesObserved) != 2 {
		t.Fatalf("bypass stats: %+v", bypass)
	}
	if bypass.GuardedRepoWritesObserved[0] != "ProductRepo.IncrementQuantity" {
		t.Fatalf("bypass writes: %v", bypass.GuardedRepoWritesObserved)
	}

	var adopted []string
	for _, m := range report.MethodsWithAggregateWrites {
		adopted = append(adopted, m.AggregateWritesObserved...)
	}
	if len(adopted) != 2 || adopted[0] != "ConfirmReceipt" || adopted[1] != "ResetForReprocess" {
		t.Fatalf("aggregate writes observed: %v", adopted)
	}

	if len(report.GuardedRepoFieldInventory) != 2 {
		t.Fatalf("guarded field inventory: %+v", report.GuardedRepoFieldInventory)
	}
	for _, f := range report.GuardedRepoFieldInventory {
		if f.RepoType == "JobRunRepo" {
			t.Fatalf("job repo should not be guarded: %+v", f)
		}
	}
}

func TestAnalyzeDefaultDirsOnRepo(t *testing.T) {
	report, err := analyze("..", scanDirs)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if report.AggregateWriteCallsites == 0 {
		t.Fatalf("expected aggregate writes in the service and module layers")
	}
	for _, m := range report.MethodsWithGuardedRepoWrites {
		for _, w := range m.GuardedRepoWritesObserved {
			if w == "ProductRepo.IncrementQuantity" || w == "TransactionRepo.CreateItems" {
				t.Fatalf("%s.%s writes stock outside the reconciliation aggregate: %s", m.StructName, m.Method, w)
			}
		}
	}
}
