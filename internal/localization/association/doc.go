// Package association matches map-frame observations to known landmarks.
//
// The contract is nearest neighbour by Euclidean distance, with distance ties
// going to the landmark that comes first in map order. Two strategies honour
// it: Linear scans every landmark, Grid uses a uniform spatial hash so large
// maps do not cost O(landmarks) per observation. Both return identical
// assignments for every finite input.
package association
