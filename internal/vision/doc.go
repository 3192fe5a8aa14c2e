// Package vision defines the face detector and preview collaborators of the
// synchronization loop and the pure Go image helpers they share.
package vision
