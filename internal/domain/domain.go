package domain

import (
	"github.com/yungbote/stockscan-backend/internal/domain/inventory"
	"github.com/yungbote/stockscan-backend/internal/domain/jobs"
	"github.com/yungbote/stockscan-backend/internal/domain/receipts"
)

type (
	Receipt       = receipts.Receipt
	ReceiptStatus = receipts.Status

	ExtractedItem  = receipts.ExtractedItem
	MatchedProduct = receipts.MatchedProduct
	ValidatedItem  = receipts.ValidatedItem
	UnmatchedItem  = receipts.UnmatchedItem
	Proposal       = receipts.Proposal

	Product         = inventory.Product
	Transaction     = inventory.Transaction
	TransactionItem = inventory.TransactionItem

	JobRun      = jobs.JobRun
	JobRunEvent = jobs.JobRunEvent
	JobUpdate   = jobs.JobUpdate

	JobEventKind = jobs.JobEventKind
)

const (
	ReceiptProcessing          = receipts.StatusProcessing
	ReceiptPendingConfirmation = receipts.StatusPendingConfirmation
	ReceiptConfirmed           = receipts.StatusConfirmed
	ReceiptFailed              = receipts.StatusFailed
)

const (
	JobEventCreated   = jobs.JobEventCreated
	JobEventProgress  = jobs.JobEventProgress
	JobEventFailed    = jobs.JobEventFailed
	JobEventSucceeded = jobs.JobEventSucceeded
)

const (
	JobStatusQueued    = jobs.StatusQueued
	JobStatusRunning   = jobs.StatusRunning
	JobStatusSucceeded = jobs.StatusSucceeded
	JobStatusFailed    = jobs.StatusFailed
	JobStatusDead      = jobs.StatusDead
	JobStatusCanceled  = jobs.StatusCanceled
)

const (
	JobTypeReceiptProcess = jobs.TypeReceiptProcess
	JobTypeCatalogEmbed   = jobs.TypeCatalogEmbed
	JobEntityReceipt      = jobs.EntityReceipt
)
