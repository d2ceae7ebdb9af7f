package core

import "herbtrace/pkg/domain"

// Operation identifies a mutating entry point for authorization purposes.
type Operation string

// Mutating operations gated by organizational role.
const (
	OpRecordCollection Operation = "record_collection"
	OpAttestQuality    Operation = "attest_quality"
	OpTransferCustody  Operation = "transfer_custody"
	OpCreateBatch      Operation = "create_batch"
	OpUpdateZones      Operation = "update_zones"
	OpInitiateRecall   Operation = "initiate_recall"
)

// Organizational tags recognized by the authorization gate.
const (
	OrgCollectors    = "FarmersCoopMSP"
	OrgLabs          = "LabsOrgMSP"
	OrgProcessors    = "ProcessorsOrgMSP"
	OrgManufacturers = "ManufacturersOrgMSP"
	OrgRegulator     = "NMPBOrgMSP"
)

// requiredOrg is the declarative policy table: each operation has exactly
// one required organizational tag.
var requiredOrg = map[Operation]string{
	OpRecordCollection: OrgCollectors,
	OpAttestQuality:    OrgLabs,
	OpTransferCustody:  OrgProcessors,
	OpCreateBatch:      OrgManufacturers,
	OpUpdateZones:      OrgRegulator,
	OpInitiateRecall:   OrgRegulator,
}

// Authorize checks the caller's organizational tag against the operation's
// required role. It runs before any state is read or validated.
func Authorize(op Operation, orgTag string) error {
	want, ok := requiredOrg[op]
	if !ok {
		return domain.Errorf(domain.KindUnauthorizedAccess, "unknown operation %s", op)
	}
	if orgTag != want {
		return domain.Errorf(domain.KindUnauthorizedAccess, "operation %s requires organization %s, caller is %q", op, want, orgTag)
	}
	return nil
}

// orgDisplayName strips the MSP suffix for provenance presentation.
func orgDisplayName(tag string) string {
	const suffix = "MSP"
	if len(tag) > len(suffix) && tag[len(tag)-len(suffix):] == suffix {
		return tag[:len(tag)-len(suffix)]
	}
	return tag
}
