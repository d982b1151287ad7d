// Package boundary loads administrative subdivision polygons from zipped
// ESRI shapefile archives, the format OCHA and similar agencies publish
// boundary datasets in.
package boundary
