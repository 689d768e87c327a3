// Package apic provides the HTTP session used to talk to a cluster of
// fabric controllers.
//
// A Session holds one authentication token for a ring of equivalent
// controller endpoints. Connectivity failures rotate the ring and retry on
// the next endpoint, and the new position is kept for later requests.
// Every completed exchange pushes the refresh deadline forward. A request
// rejected because the token expired triggers a single re-login and a
// single replay.
//
//	s, err := apic.Connect(ctx, cfg, tel)
//	if err != nil {
//	    return err
//	}
//	defer s.Logout(ctx)
//
//	imdata, err := s.Get(ctx, "/mo/uni/tn-common.json?query-target=self")
package apic
