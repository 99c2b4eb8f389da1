package store

import "fmt"

// Logical key layout. Every component addresses the store through these
// builders so the scheme lives in one place.

func RouteKey(eventID, eventDetailID int64) string {
	return fmt.Sprintf("route:%d:%d", eventID, eventDetailID)
}

func RouteEventKey(eventID int64) string {
	return fmt.Sprintf("route:event:%d", eventID)
}

func LocationKey(eventID, eventDetailID, userID int64) string {
	return fmt.Sprintf("gps:%d:%d:%d", eventID, eventDetailID, userID)
}

func PrevPosKey(userID, eventID, eventDetailID int64) string {
	return fmt.Sprintf("prevpos:%d:%d:%d", userID, eventID, eventDetailID)
}

func CheckpointTimesKey(userID, eventID, eventDetailID int64) string {
	return fmt.Sprintf("cpTimes:%d:%d:%d", userID, eventID, eventDetailID)
}

func SegmentRecordsKey(userID, eventID, eventDetailID int64) string {
	return fmt.Sprintf("segRecords:%d:%d:%d", userID, eventID, eventDetailID)
}

func LeaderboardKey(eventID, eventDetailID int64) string {
	return fmt.Sprintf("leaderboard:%d:%d", eventID, eventDetailID)
}
