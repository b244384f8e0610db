package mqtt

import "fmt"

// TopicPrefixUser is the base of the per-user topic namespace. Each
// user's credential ACL is scoped to their own subtree, so messages
// published here are only visible to that user's devices.
const TopicPrefixUser = "user"

// Topics provides builders for the bridge's MQTT topics.
// Using these helpers keeps topic naming consistent with the ACLs
// embedded in issued credentials.
type Topics struct{}

// UserNotification returns the topic notifications for a user are
// published to. The trailing slash is part of the topic name and
// matches the `user/<id>/#` grant in user credentials.
//
// Example: user/usr-42/
func (Topics) UserNotification(userID string) string {
	return fmt.Sprintf("%s/%s/", TopicPrefixUser, userID)
}

// UserSubtree returns the wildcard pattern covering everything in a
// user's namespace.
//
// Pattern: user/usr-42/#
func (Topics) UserSubtree(userID string) string {
	return fmt.Sprintf("%s/%s/#", TopicPrefixUser, userID)
}
