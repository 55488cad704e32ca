package pipeline

import (
	"fmt"
	"regexp"
	"strconv"

	"bitbucket.org/mmdatafocus/reservations_backend/extract"
	"bitbucket.org/mmdatafocus/reservations_backend/models"
	"bitbucket.org/mmdatafocus/reservations_backend/utils"
)

// Files downloaded from the mailbox follow RES_<number>_<edition>.pdf.
var filenameHintRe = regexp.MustCompile(`(?i)RES_(\d+)_(\d+)\.pdf$`)

// ParseFilenameHint extracts the identity hint carried by the filename
// convention. ok is false when the name doesn't follow the convention.
func ParseFilenameHint(filename string) (key models.IdentityKey, ok bool) {
	m := filenameHintRe.FindStringSubmatch(filename)
	if m == nil {
		return models.IdentityKey{}, false
	}
	num, err := strconv.Atoi(m[1])
	if err != nil || num <= 0 {
		return models.IdentityKey{}, false
	}
	ed, err := strconv.Atoi(m[2])
	if err != nil || ed < 0 {
		return models.IdentityKey{}, false
	}
	return models.IdentityKey{ReservationNumber: num, Edition: ed}, true
}

// ResolveIdentity derives the stable identity key for one document from
// the filename hint and the content-derived candidate values. When both
// carry a reservation number they must agree; a contradiction means the
// document cannot be trusted at all. The filename edition wins a
// disagreement, matching the mail side which stamps it from the message.
func ResolveIdentity(filename string, cand extract.CandidateFields) (models.IdentityKey, error) {
	hint, hasHint := ParseFilenameHint(filename)

	contentNum64, numErr := cand.ReservationNumber.Int64()
	hasContentNum := numErr == nil && contentNum64 > 0
	contentEd64, edErr := cand.Edition.Int64()
	hasContentEd := edErr == nil && contentEd64 >= 0

	switch {
	case hasHint && hasContentNum:
		if int(contentNum64) != hint.ReservationNumber {
			return models.IdentityKey{}, fmt.Errorf("%w: filename says %d, content says %d",
				utils.ErrMalformedIdentity, hint.ReservationNumber, contentNum64)
		}
		return hint, nil
	case hasHint:
		return hint, nil
	case hasContentNum:
		ed := 0
		if hasContentEd {
			ed = int(contentEd64)
		}
		return models.IdentityKey{ReservationNumber: int(contentNum64), Edition: ed}, nil
	default:
		return models.IdentityKey{}, fmt.Errorf("%w: no reservation number derivable from %q",
			utils.ErrMalformedIdentity, filename)
	}
}
