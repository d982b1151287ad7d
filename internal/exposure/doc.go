/*
Package exposure performs the spatial joins at the heart of the analysis.

The raster's cell centroids are joined onto administrative units (question 1:
population per unit) and onto the cyclone's wind buffers, made disjoint by
strongest-band attribution (question 2: population per wind speed). Crossing
the two assignments yields per-unit exposure counts and percentages
(questions 3 and 4).
*/
package exposure
