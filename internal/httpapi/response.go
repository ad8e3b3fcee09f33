package httpapi

import "github.com/mowsen/fingerprint/internal/matchengine"

// response mirrors spec §6.2's wire shape for a MatchResult.
type response struct {
	VisitorID          string              `json:"visitorId"`
	MatchType          string              `json:"matchType"`
	Confidence         float64             `json:"confidence"`
	IsNewVisitor       bool                `json:"isNewVisitor"`
	FingerprintID      string              `json:"fingerprintId"`
	Visitor            visitorSummary      `json:"visitor"`
	Request            requestEcho         `json:"request"`
	RecentVisits       []visitEntry        `json:"recentVisits"`
	PersistentIdentity *persistentIdentity `json:"persistentIdentity,omitempty"`
}

type visitorSummary struct {
	FirstSeen string  `json:"firstSeen"`
	VisitCount int    `json:"visitCount"`
	LastVisit  *string `json:"lastVisit,omitempty"`
}

type requestEcho struct {
	Timestamp int64  `json:"timestamp"`
	IPAddress string `json:"ipAddress"`
	Browser   string `json:"browser"`
}

type visitEntry struct {
	Timestamp string `json:"timestamp"`
	IPAddress string `json:"ipAddress"`
	Browser   string `json:"browser"`
}

type persistentIdentity struct {
	ShouldUpdate bool   `json:"shouldUpdate"`
	Signature    string `json:"signature,omitempty"`
	Token        string `json:"-"`
}

func responseFromResult(r matchengine.MatchResult) response {
	visits := make([]visitEntry, 0, len(r.Visitor.RecentSessions))
	for _, s := range r.Visitor.RecentSessions {
		visits = append(visits, visitEntry{
			Timestamp: s.Timestamp.UTC().Format(timeLayout),
			IPAddress: s.IPAddress,
			Browser:   s.UserAgent,
		})
	}

	// RecentSessions is newest-first and already includes the session the
	// current request just created (index 0), so the visitor's prior visit
	// is index 1, if one exists.
	var lastVisit *string
	if len(r.Visitor.RecentSessions) > 1 {
		v := r.Visitor.RecentSessions[1].Timestamp.UTC().Format(timeLayout)
		lastVisit = &v
	}

	resp := response{
		VisitorID:     r.VisitorID,
		MatchType:     r.MatchType,
		Confidence:    r.Confidence,
		IsNewVisitor:  r.IsNewVisitor,
		FingerprintID: r.FingerprintID,
		Visitor: visitorSummary{
			FirstSeen:  r.Visitor.CreatedAt.UTC().Format(timeLayout),
			VisitCount: r.Visitor.VisitCount,
			LastVisit:  lastVisit,
		},
		Request: requestEcho{
			Timestamp: r.Request.Timestamp,
			IPAddress: r.Request.IPAddress,
			Browser:   r.Request.Browser,
		},
		RecentVisits: visits,
	}

	if r.PersistentIdentity != nil {
		resp.PersistentIdentity = &persistentIdentity{
			ShouldUpdate: r.PersistentIdentity.ShouldUpdate,
			Signature:    r.PersistentIdentity.Signature,
		}
	}
	return resp
}

const timeLayout = "2006-01-02T15:04:05.000Z"
