package contracts

// Channel key builders. The router treats keys as opaque strings; everything
// that publishes or joins agrees on these shapes.

func UserChannel(userID string) string   { return "user:" + userID }
func RideChannel(rideID string) string   { return "ride:" + rideID }
func TripChannel(tripID string) string   { return "trip:" + tripID }
func RegionChannel(region string) string { return "region:" + region }
func GridChannel(cellKey string) string  { return "grid:" + cellKey }
