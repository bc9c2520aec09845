// Package geom holds the pure 2D geometry used by the localizer: poses,
// points, the sensor-frame to map-frame transform and Euclidean distance.
//
// Coordinate convention: map frame is X east, Y north; heading Theta is
// measured counter-clockwise from +X in radians. Sensor frame is X forward,
// Y left of the vehicle.
//
// Heading is never wrapped to a canonical range. Every consumer goes through
// sin/cos, which are range-insensitive.
package geom
