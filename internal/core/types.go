package core

import "herbtrace/pkg/domain"

type (
	Actor              = domain.Actor
	CollectionEvent    = domain.CollectionEvent
	QualityAttestation = domain.QualityAttestation
	ProcessingRecord   = domain.ProcessingRecord
	ProductBatch       = domain.ProductBatch
	ProvenanceChain    = domain.ProvenanceChain
	ProvenanceStep     = domain.ProvenanceStep
	ZoneYield          = domain.ZoneYield
	ApprovedZone       = domain.ApprovedZone
	ZoneUpdate         = domain.ZoneUpdate
	RecallNotice       = domain.RecallNotice
	Change             = domain.Change
	Violation          = domain.Violation
	Result             = domain.Result
	Rule               = domain.Rule
	RulesEngine        = domain.RulesEngine
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
)

const (
	StatusCollected     = domain.StatusCollected
	StatusQualityPassed = domain.StatusQualityPassed
	StatusQualityFailed = domain.StatusQualityFailed
	StatusProcessed     = domain.StatusProcessed
	StatusManufactured  = domain.StatusManufactured
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
)
