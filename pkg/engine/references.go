package engine

import (
	"context"
	"fmt"
)

// DownloadURLPrefix is the path under which allowed documents are served.
const DownloadURLPrefix = "/api/v1/download/"

// ProcessResponseReferences re-checks every document cited by a generated
// response and annotates each citation with the caller's download rights.
// References the caller cannot download keep their excerpt but gain contact
// info and an access message instead of a URL.
func (e *Engine) ProcessResponseReferences(ctx context.Context, userID string, refs []Reference) (*ProcessedResponse, error) {
	processed := &ProcessedResponse{
		References:      make([]ProcessedReference, 0, len(refs)),
		TotalReferences: len(refs),
	}

	for _, ref := range refs {
		if ref.DocumentID == "" {
			continue
		}

		allowed, decision := e.CanDownloadFile(ctx, userID, ref.DocumentID)

		out := ProcessedReference{Reference: ref, CanDownload: allowed}
		if out.Title == "" {
			out.Title = decision.Title
		}
		if allowed {
			out.DownloadURL = DownloadURLPrefix + ref.DocumentID
			processed.DownloadableCount++
		} else {
			out.ContactInfo = decision.ContactInfo
			out.AccessMessage = decision.AccessMessage()
		}
		if allowed || decision.Reason == ReasonMetadataOnly {
			processed.AccessibleCount++
		}

		processed.References = append(processed.References, out)
	}

	if processed.DownloadableCount < len(processed.References) {
		processed.PartialAccess = true
		restricted := len(processed.References) - processed.DownloadableCount
		processed.Notice = fmt.Sprintf("참고 문서 %d건 중 %d건은 다운로드가 제한되어 있습니다.",
			len(processed.References), restricted)
	}

	return processed, nil
}
